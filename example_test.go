package quota_test

import (
	"context"
	"fmt"

	"github.com/ryhazerus/quota"
)

func ExampleHandle_Hit() {
	tracker := quota.New()
	h, err := tracker.Bind("user-42")
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	if err := h.Create(ctx, 2, 1000); err != nil {
		panic(err)
	}

	for i := 0; i < 3; i++ {
		d, err := h.Hit(ctx, 2, 1000)
		if err != nil {
			panic(err)
		}
		fmt.Println(d.Allowed, d.Reason, d.MinuteRemaining, d.MonthRemaining)
	}
	// Output:
	// true  1 999
	// true  0 998
	// false minute quota exceeded 0 998
}

func ExampleHandle_Update() {
	tracker := quota.New()
	h, _ := tracker.Bind("user-7")

	ctx := context.Background()
	h.Create(ctx, 10, 100)
	for i := 0; i < 5; i++ {
		h.Hit(ctx, 10, 100)
	}

	h.Update(ctx, 10, 200)
	month, _ := h.Remaining(ctx, quota.Month, 200)
	fmt.Println(month)
	// Output: 195
}

func ExampleDecision_Err() {
	tracker := quota.New()
	h, _ := tracker.Bind("user-9")

	ctx := context.Background()
	h.Create(ctx, 5, 0)
	d, _ := h.Hit(ctx, 5, 0)
	fmt.Println(d.Err())
	// Output: quota: month quota exceeded for user-9 (minute 5, month 0)
}

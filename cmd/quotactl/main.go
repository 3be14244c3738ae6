// Command quotactl manages per-subject minute and month quotas.
package main

import "github.com/ryhazerus/quota/cmd/quotactl/cmd"

func main() {
	cmd.Execute()
}

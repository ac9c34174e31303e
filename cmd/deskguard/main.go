// Deskguard is a policy template and version lifecycle engine for
// helpdesk domains: chat, SLA, and remote session policies.
package main

import "github.com/Desk-Guard/Deskguard/cmd/deskguard/cmd"

func main() {
	cmd.Execute()
}

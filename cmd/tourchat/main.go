// Tourchat: terminal client for the tourdesk chat server. REST for rooms
// and history, NATS for live messaging with optimistic sends.
package main

import "github.com/tourdesk/tourdesk/internal/tourcli"

func main() {
	tourcli.Main()
}

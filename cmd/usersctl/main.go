// The usersctl command manages users through the HTTP API.
//
//	usersctl list
//	usersctl get <id>
//	usersctl create --name Ann --email ann@example.com --city Paris --country France
//	usersctl update <id> --name ... --email ... --city ... --country ...
//	usersctl delete <id>
//
// The API base URL is taken from --api or USERS_API_URL.
package main

import (
	"log"
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		log.Fatal(err)
	}
}

// The usersvc command serves the users HTTP API.
package main

import (
	"log"

	"github.com/patric-chuzhbe/usercrud/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		log.Fatal(err)
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		log.Println(err)
	}
}

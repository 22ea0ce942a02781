package main

import (
	"log"

	"ClearFM/cmd"
)

func main() {
	cmd.Execute()
	log.Println("Application command execution finished or server started.")
}

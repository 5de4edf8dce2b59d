package main

import "loan-submission-queue/cmd/api/cmd"

func main() {
	cmd.Execute()
}

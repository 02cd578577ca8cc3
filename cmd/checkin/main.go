package main

import "github.com/apexfest/checkin/internal/cli"

func main() {
	cli.Execute()
}

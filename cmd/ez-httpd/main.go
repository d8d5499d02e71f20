package main

import "github.com/raphaelreyna/ez-httpd/cmd/ez-httpd/cmd"

func main() {
	cmd.Execute()
}

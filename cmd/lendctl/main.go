package main

import "github.com/ovaphlow/pitchfork/service-lending-go/internal/cli"

func main() {
	cli.Execute()
}

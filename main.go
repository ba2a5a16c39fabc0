package main

import "github.com/fakeyudi/clippi/cmd"

func main() {
	cmd.Execute()
}

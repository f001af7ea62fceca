package main

import "github.com/jensroland/git-aitrack/cmd"

var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}

package main

import "github.com/ensui-dev/MusicCompanionWidget/cmd"

func main() {
	cmd.Execute()
}

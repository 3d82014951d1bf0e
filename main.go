package main

import "videoHighlights/cmd"

func main() {
	cmd.Execute()
}

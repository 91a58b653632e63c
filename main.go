package main

import "github.com/arborlabs/arbor/cmd"

func main() {
	cmd.Execute()
}

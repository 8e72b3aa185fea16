package main

import "github.com/MeKo-Tech/huewheel/internal/cmd"

func main() {
	cmd.Execute()
}

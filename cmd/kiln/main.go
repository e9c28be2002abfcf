package main

import "github.com/kilnbuild/kiln/cmd/kiln/internal"

func main() {
	internal.Execute()
}

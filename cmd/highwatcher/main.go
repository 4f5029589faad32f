package main

import "price-high-alerts/internal/cli"

func main() {
	cli.Execute()
}

// Package main — dicectl, утилита администратора игры.
package main

import "serotonyl.ru/dice-bot/internal/cli"

func main() {
	cli.Execute()
}

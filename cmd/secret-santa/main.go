package main

import "telegram-secret-santa/internal/app"

func main() {
	app.Run()
}

// Package main is the entry point for the vectorinit database bootstrap service.
//
// @title          vectorinit API
// @version        1.0
// @description    Enables the pgvector extension and grants the application role privileges on the RAG database, then exposes a health/status HTTP API.
// @host           localhost:8081
// @BasePath       /
// @schemes        http
package main

func main() {
	Execute()
}

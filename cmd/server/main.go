package main

import (
	"github.com/ojpp/broadlistening/backend/internal/server"
	"github.com/ojpp/broadlistening/backend/internal/util"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
	"github.com/ojpp/broadlistening/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}

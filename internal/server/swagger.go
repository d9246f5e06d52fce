package server

//go:generate swag init -d . -g swagger.go -o ../../docs/swagger

// @title flipradar API
// @version 1.0
// @description Arbitrage opportunity dashboard API: opportunities, scan jobs, stats and purchase approvals.
// @contact.name flipradar maintainers
// @contact.url https://github.com/raysh454/flipradar
// @BasePath /

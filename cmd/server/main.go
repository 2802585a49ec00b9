// Package main runs the webcache HTTP service.
//
//	@title			Webcache API
//	@version		1.0
//	@description	A read-through page cache with per-URL access counters
//	@host			localhost:8080
//	@BasePath		/
//	@schemes		http https
package main

import (
	"go.uber.org/fx"

	_ "github.com/sp3dr4/webcache/docs"
	fxmodules "github.com/sp3dr4/webcache/internal/fx"
)

func main() {
	fx.New(fxmodules.HTTPServerModules).Run()
}

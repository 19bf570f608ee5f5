// Command memoman はメモ管理APIサーバーを起動する。
//
//	memoman [serve|worker|migrate|healthcheck|version]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/memoman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "memoman: %v\n", err)
		os.Exit(1)
	}
}

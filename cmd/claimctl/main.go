package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/claimgate/internal/admin"
)

func main() {
	if err := admin.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/guptaanant682/memorybank-backend/internal/app"
	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	port := envutil.Str("PORT", "8080")
	a.Log.Info("Server listening", "port", port)
	if err := a.Run(":" + port); err != nil {
		a.Log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

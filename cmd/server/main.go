// Package main provides the climate extraction HTTP server.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agroclim/era5-extract/internal/adapter/cds"
	httpHandler "github.com/agroclim/era5-extract/internal/http"
	"github.com/agroclim/era5-extract/internal/logger"
	"github.com/agroclim/era5-extract/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("era5-extract server version %s\n", version)
		return
	}

	// Load configuration from environment.
	port := getEnv("PORT", "8080")
	outDir := getEnv("OUTPUT_DIR", filepath.Join(os.TempDir(), "era5-extract"))
	tempDir := getEnv("TEMP_DIR", os.TempDir())

	logger.Init(os.Getenv("DEBUG") != "")
	defer logger.Sync()

	logger.Infof("starting extraction server")
	logger.Infof("port: %s", port)
	logger.Infof("output directory: %s", outDir)

	client, err := cds.NewClientFromEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	pipeline := usecase.New(client, nil)
	pipeline.TempDir = tempDir

	// Setup router.
	router := httpHandler.SetupRouter(pipeline, outDir)

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	logger.Infof("server listening on %s", addr)
	logger.Infof("health check: http://localhost:%s/healthz", port)
	logger.Infof("API endpoints:")
	logger.Infof("  - GET  /v1/variables")
	logger.Infof("  - POST /v1/extractions/polygon")
	logger.Infof("  - POST /v1/extractions/point")

	if err := router.Run(addr); err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("ERA5-Land Extraction Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  OUTPUT_DIR              Directory for extraction artifacts (default: <tmp>/era5-extract)")
	fmt.Println("  TEMP_DIR                Directory for intermediate dataset files (default: system temp)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  CDSAPI_URL              Climate Data Store API endpoint (default: public CDS)")
	fmt.Println("  CDSAPI_KEY              Climate Data Store API key (or use ~/.cdsapirc)")
	fmt.Println("  DEBUG                   Any non-empty value enables debug logging")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start server with default settings")
	fmt.Println("  CDSAPI_KEY=<key> server")
	fmt.Println()
	fmt.Println("  # Start server on custom port")
	fmt.Println("  PORT=3000 CDSAPI_KEY=<key> server")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /healthz                  Health check")
	fmt.Println("  GET  /v1/variables             List known ERA5-Land variables")
	fmt.Println("  POST /v1/extractions/polygon   Extract rasters or vector grids for a region")
	fmt.Println("  POST /v1/extractions/point     Extract a CSV of values at points")
	fmt.Println()
}

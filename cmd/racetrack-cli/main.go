package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/OCAP2/racetrack/internal/config"
	"github.com/OCAP2/racetrack/internal/database"
	"github.com/OCAP2/racetrack/internal/logging"

	"github.com/spf13/pflag"
)

const usage = `usage: racetrack-cli [flags] <command> [args]

commands:
  setupdb               migrate the race tables
  races                 list stored races
  results <raceId>...   print the results of the given races as JSON,
                        "latest" picks the newest race
  import <dir>          copy every race from the sqlite dumps in dir
`

func main() {
	configDir := pflag.StringP("config", "c", ".", "directory containing "+config.FileName)
	sqlitePath := pflag.String("sqlite", "", "read a sqlite dump instead of the configured database")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	}
	slogManager.Setup(nil, config.GetString("logLevel"), nil)
	logger = slogManager.Logger()

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	m, err := connect(*sqlitePath)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	db := m.DB

	switch strings.ToLower(args[0]) {
	case "setupdb":
		err = m.Setup()
	case "races":
		err = listRaces(db, os.Stdout)
	case "results":
		if len(args) < 2 {
			fmt.Println("No race IDs provided.")
			os.Exit(2)
		}
		err = printResults(db, os.Stdout, args[1:])
	case "import":
		if len(args) < 2 {
			fmt.Println("No dump directory provided.")
			os.Exit(2)
		}
		var paths []string
		paths, err = database.GetBackupDBPaths(args[1])
		if err == nil {
			err = importDumps(db, paths, logger)
		}
	default:
		pflag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func connect(sqlitePath string) (*database.Manager, error) {
	m := database.NewManager(config.GetStorageConfig().DB, logging.NewZerolog(os.Stderr, config.GetString("logLevel")))
	if sqlitePath != "" {
		db, err := database.GetSqliteDB(sqlitePath)
		if err != nil {
			return nil, err
		}
		m.DB, m.ShouldSaveLocal, m.IsValid = db, true, true
		return m, nil
	}
	if err := m.Connect(); err != nil {
		return nil, err
	}
	if m.ShouldSaveLocal {
		return nil, fmt.Errorf("postgres unreachable, use --sqlite to read a dump")
	}
	return m, nil
}

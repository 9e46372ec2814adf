// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

// serveCommand starts the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API with live WebSocket and SSE updates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

// downloadCommand runs a single task in the foreground
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "download",
		Aliases: []string{"dl"},
		Usage:   "Download a channel, playlist or video",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "url",
			},
		},
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "max",
				Aliases: []string{"n"},
				Usage:   "Maximum number of videos (default from config)",
			},
			&cli.BoolFlag{
				Name:  "audio",
				Usage: "Download audio only",
			},
			&cli.BoolFlag{
				Name:  "no-skip",
				Usage: "Download even when an equivalent file already exists",
			},
			&cli.StringFlag{
				Name:  "quality",
				Usage: "Quality hint passed to the provider (default from config)",
			},
			&cli.BoolFlag{
				Name:  "mp3",
				Usage: "Convert audio downloads to mp3",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Follow progress in a live terminal view",
			},
		}, outputFlags()...),
		Action: r.Download,
	}
}

// tasksCommand reads task history
func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect finished tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded tasks, newest first",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tasks to return",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only tasks with this status (completed, failed)",
					},
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "Output CSV",
					},
				}, outputFlags()...),
				Action: r.TasksList,
			},
			{
				Name:  "show",
				Usage: "Show a task and its items",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "export",
						Usage: "Write {output}_items.csv and {output}_snapshot.json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Export base path (default: the task id)",
					},
				}, outputFlags()...),
				Action: r.TasksShow,
			},
			{
				Name:  "delete",
				Usage: "Remove a task from history",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.TasksDelete,
			},
		},
	}
}

// proxyCommand inspects proxy sources
func proxyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "Inspect upstream proxy sources",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List candidates from configured sources",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ProxyList,
			},
			{
				Name:  "check",
				Usage: "Probe candidates and list the healthy ones",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "URL to request through each proxy (default from config)",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Concurrent probes",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ProxyCheck,
			},
		},
	}
}

// setupCommand handles setup operations for the database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write the default config file and create download directories",
				Action: r.SetupConfig,
			},
		},
	}
}

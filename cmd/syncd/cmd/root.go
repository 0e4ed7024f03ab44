package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/driveline/syncd/pkg/blobstore"
	"github.com/driveline/syncd/pkg/clog"
	"github.com/driveline/syncd/pkg/config"
	"github.com/driveline/syncd/pkg/syncdb"
	"github.com/driveline/syncd/pkg/syncdb/stor"
	"github.com/driveline/syncd/pkg/syncft"
	"github.com/driveline/syncd/pkg/syncft/ft"
	"github.com/driveline/syncd/pkg/syncft/webapi/apimiddleware"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	inMemory bool
)

// rootCmd runs the transfer daemon.
var rootCmd = &cobra.Command{
	Use:   "syncd",
	Short: "Run the file sync transfer daemon",
	Long: `syncd accepts websocket transfer sessions on /api/ws, stores file content
once per content hash and resumes interrupted transfers.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings := mustLoadSettings()
		if err := Run(settings); err != nil {
			log.Fatalf("syncd: %s", err)
		}
	},
}

func Run(settings *config.Settings) error {
	storage, err := openStorage(settings)
	if err != nil {
		return err
	}

	if len(settings.APITokens) == 0 {
		log.Warnf("No %s configured, every /api request will be rejected", config.APITokensKey)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	server := syncft.NewServer(e, storage, syncft.ServerOptions{
		Session: ft.SessionOptions{
			ShardWidth:         settings.ShardWidth,
			CheckpointChunks:   settings.CheckpointChunks,
			CheckpointInterval: settings.CheckpointInterval,
			SingleFileSession:  settings.SingleFileSessions,
		},
		IdleTimeout:  settings.IdleTimeout,
		ResolveOwner: apimiddleware.StaticTokens(settings.APITokens),
		Logger:       clog.Default(),
	})

	if err := server.Init(); err != nil {
		return err
	}

	go stopOnSignal(server)

	log.Infof("Listening on %s, blobs in %s", settings.ListenAddr, settings.BlobDir)
	return server.Start(settings.ListenAddr)
}

func stopOnSignal(server *syncft.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	log.Infof("Got %s signal, closing sessions...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Errorf("Shutdown failed: %s", err)
	}
}

func mustLoadSettings() *config.Settings {
	c := config.MustLoad(cfgFile)
	settings, err := config.LoadSettings(c)
	if err != nil {
		log.Fatalf("Invalid configuration: %s", err)
	}

	setupLogging(settings.LogLevel)

	return settings
}

func setupLogging(level string) {
	log.SetHandler(clog.NewHandler(os.Stdout))
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("Invalid %s %q: %s", config.LogLevelKey, level, err)
	}
	log.SetLevel(lvl)

	clog.AddLoggingContext(clog.TransferCtx, os.Stdout)
	clog.AddLoggingContext(clog.HTTPCtx, os.Stdout)
	clog.AddLoggingContext(clog.StoreCtx, os.Stdout)

	for _, info := range clog.Contexts() {
		_ = clog.SetLevelFromString(info.Name, level)
	}
}

func openStorage(settings *config.Settings) (*ft.StorageContext, error) {
	var meta stor.MetadataStor
	if inMemory {
		log.Warnf("Using the in-memory metadata store, nothing will survive a restart")
		meta = stor.NewInMemoryMetadataStor()
	} else {
		meta = stor.NewGormMetadataStor(syncdb.MustConnectToDB(settings))
	}

	blobs, err := blobstore.NewLocalBlobStore(settings.BlobDir, settings.ShardWidth)
	if err != nil {
		return nil, err
	}

	return ft.NewStorageContext(meta, blobs)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, dotenv or yaml/toml/json (default $SYNCD_DOTENV_PATH)")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "in-memory", false, "keep metadata in memory instead of the database")
}

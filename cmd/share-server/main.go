package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/localshare/share-go/internal/database"
	"github.com/localshare/share-go/internal/handler"
	"github.com/localshare/share-go/internal/idgen"
	"github.com/localshare/share-go/internal/server"
	"github.com/localshare/share-go/internal/settings"
	"github.com/localshare/share-go/internal/share"
	"github.com/localshare/share-go/internal/upload"
)

var dbFile = database.DefaultFile
var settingsFile = ""

func init() {
	if d := os.Getenv("SHARE_DB_FILE"); d != "" {
		dbFile = d
	}
	if f := os.Getenv("SHARE_SETTINGS_FILE"); f != "" {
		settingsFile = f
	}
}

func main() {
	l := log.New().WithField("db_file", dbFile)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer l.Println("got interruption signal")

	if settingsFile == "" {
		f, err := settings.File()
		if err != nil {
			l.WithError(err).Fatal("failed to locate settings file")
		}
		settingsFile = f
	}
	conf, err := settings.Load(settingsFile)
	if err != nil {
		l.WithError(err).Fatal("failed to load settings")
	}
	if p := os.Getenv("SHARE_PORT"); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			l.WithError(err).Fatal("invalid SHARE_PORT")
		}
		conf.Port = uint16(port)
	}
	if s := os.Getenv("SHARE_STORAGE_FOLDER"); s != "" {
		conf.StorageFolder = s
	}
	l = l.WithFields(log.Fields{
		"port":           conf.Port,
		"storage_folder": conf.StorageFolder,
	})

	if err := os.MkdirAll(conf.StorageFolder, 0o755); err != nil {
		l.WithError(err).Fatal("failed to create storage folder")
	}

	db, err := database.NewDb(dbFile)
	if err != nil {
		l.WithError(err).Fatal("failed to open database")
	}
	repo := database.NewRepository(db)

	ids, err := idgen.New(1)
	if err != nil {
		l.WithError(err).Fatal("failed to create id generator")
	}

	engine := upload.NewEngine(repo, conf.StorageFolder, l)
	shares := share.NewService(repo, ids, l)

	srv := server.New(handler.NewHandler(engine, shares, l), l)
	if err := srv.Start(conf.Port); err != nil {
		l.WithError(err).Fatal("failed to start server")
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			l.WithError(err).Error("server shutdown returned an error")
		}
	}()

	<-ctx.Done()
}

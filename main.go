package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"beatsync.fm/api"
	"beatsync.fm/config"
	"beatsync.fm/pkg/changefeed"
	"beatsync.fm/pkg/youtube"
	"beatsync.fm/storage"
	"github.com/go-redis/redis/v7"
	"github.com/labstack/gommon/log"
)

func main() {
	// APP configuration
	c := config.Get()

	// Redis client
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	err := rdb.Ping().Err()
	if err != nil {
		log.Fatal(err)
	}

	// Change feed
	feed := changefeed.NewRedisFeed(rdb)
	// Storage
	s := storage.New(rdb, feed)

	// External video search, optional
	var yt *youtube.Client
	if c.YoutubeAPIKey != "" {
		yt = youtube.NewClient(c.YoutubeAPIKey, c.YoutubeSearchURL)
	}

	// API
	a := api.New(c, s, feed, yt)

	go func() {
		// Starting API
		if err := a.Start(); err != nil {
			log.Warn(err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	// waiting for signals
	quit := <-signals
	log.Infof("signal %s received, stopping server...", quit)
	// Stopping server
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	if err = a.Close(ctx); err != nil {
		log.Error(err)
	}
	cancel()

	if err = feed.Close(); err != nil {
		log.Error(err)
	}
	if err = rdb.Close(); err != nil {
		log.Error(err)
	}
}

package config

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/labstack/gommon/log"
	"sync"
)

type Config struct {
	HttpPort         int    `envconfig:"HTTP_PORT" required:"true"`
	RedisAddr        string `envconfig:"REDIS_ADDR" required:"true"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD" required:"true"`
	RedisDB          int    `envconfig:"REDIS_DB" required:"false" default:"0"`
	MaxWorkers       int    `envconfig:"MAX_WORKERS" required:"false" default:"64"`
	MediaDir         string `envconfig:"MEDIA_DIR" required:"false" default:"./media"`
	MediaBaseURL     string `envconfig:"MEDIA_BASE_URL" required:"false" default:"http://localhost:8080/media"`
	YoutubeAPIKey    string `envconfig:"YOUTUBE_API_KEY" required:"false"`
	YoutubeSearchURL string `envconfig:"YOUTUBE_SEARCH_URL" required:"false" default:"https://www.googleapis.com/youtube/v3/search"`
}

var (
	c    Config
	once sync.Once
)

func Get() *Config {
	once.Do(func() {
		err := envconfig.Process("", &c)
		if err != nil {
			log.Fatal(err)
		}
	})
	return &c
}

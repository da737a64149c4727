package activeregions

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/activeregions/api"
	"github.com/googlegenomics/activeregions/internal/config"
	"github.com/googlegenomics/activeregions/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/appengine"
)

func init() {
	router := gin.New()
	router.Use(gin.Recovery())
	server := api.NewServer(newAppEngineClient, config.Default(), logrus.WithField("service", "activeregions"))
	if list := os.Getenv("BUCKET_WHITELIST"); list != "" {
		server.Whitelist(strings.Split(list, ","))
	}
	server.Export(router)
	http.Handle("/", router)
}

func newAppEngineClient(req *http.Request) (storage.Client, http.Header, error) {
	return storage.NewClientFromBearerToken(req.WithContext(appengine.NewContext(req)))
}

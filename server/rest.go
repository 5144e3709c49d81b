// Copyright 2025 bidrec Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/auctionlab/bidrec/base/log"
	"github.com/auctionlab/bidrec/config"
	"github.com/auctionlab/bidrec/logics"
	"github.com/auctionlab/bidrec/storage/data"
)

// RestServer implements the REST-ful API server.
type RestServer struct {
	Config     *config.Config
	DataClient data.Database
	Engine     *logics.Engine
	HttpHost   string
	HttpPort   int
	WebService *restful.WebService
}

// StartHttpServer starts the REST-ful API server.
func (s *RestServer) StartHttpServer() {
	// register restful APIs
	s.CreateWebService()
	restful.DefaultContainer.Add(s.WebService)
	// register swagger UI
	specConfig := restfulspec.Config{
		WebServices: restful.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	restful.DefaultContainer.Add(restfulspec.NewOpenAPIService(specConfig))
	// register prometheus
	http.Handle("/metrics", promhttp.Handler())

	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s:%d", s.HttpHost, s.HttpPort)))
	log.Logger().Fatal("failed to start http server",
		zap.Error(http.ListenAndServe(fmt.Sprintf("%s:%d", s.HttpHost, s.HttpPort), nil)))
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	chain.ProcessFilter(req, resp)
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()))
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(LogFilter)

	// Get recommendation
	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommendation for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommend"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Writes(logics.Recommendation{}))
	// Log a page view
	ws.Route(ws.POST("/view/{user-id}/{item-id}").To(s.insertView).
		Doc("Log a page view.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"view"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("integer")).
		Writes(Success{}))
	// Insert users
	ws.Route(ws.POST("/users").To(s.insertUsers).
		Doc("Insert users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads([]data.User{}).
		Writes(Success{}))
	// Insert items
	ws.Route(ws.POST("/items").To(s.insertItems).
		Doc("Insert auction items.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"item"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads([]data.Item{}).
		Writes(Success{}))
	// Insert a bid
	ws.Route(ws.POST("/bid").To(s.insertBid).
		Doc("Insert a bid.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"bid"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads(data.Bid{}).
		Writes(Success{}))
	// Health check
	ws.Route(ws.GET("/health").To(s.checkHealth).
		Doc("Probe liveness of the data store.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(HealthStatus{}))
}

// Success is the returned data structure for data insert operations.
type Success struct {
	RowAffected int
}

// HealthStatus is the returned data structure for the health check.
type HealthStatus struct {
	Ready bool
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	// authorize
	if !s.auth(request, response) {
		return
	}
	start := time.Now()
	// parse user id
	userId, err := strconv.ParseInt(request.PathParameter("user-id"), 10, 64)
	if err != nil {
		BadRequest(response, err)
		return
	}
	// parse number of items
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	result, err := s.Engine.GetRecommendations(request.Request.Context(), userId, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	RecommendSeconds.Observe(time.Since(start).Seconds())
	RecommendationsTotal.WithLabelValues(result.Mode).Inc()
	Ok(response, result)
}

// parseN reads the n query parameter, falling back to the configured
// default and capping at the configured maximum.
func (s *RestServer) parseN(request *restful.Request) (int, error) {
	n := s.Config.Server.DefaultN
	if raw := request.QueryParameter("n"); raw != "" {
		var err error
		n, err = strconv.Atoi(raw)
		if err != nil {
			return 0, err
		}
		if n <= 0 {
			return 0, fmt.Errorf("n must be positive: %d", n)
		}
	}
	if n > s.Config.Server.MaxN {
		n = s.Config.Server.MaxN
	}
	return n, nil
}

func (s *RestServer) insertView(request *restful.Request, response *restful.Response) {
	// authorize
	if !s.auth(request, response) {
		return
	}
	userId, err := strconv.ParseInt(request.PathParameter("user-id"), 10, 64)
	if err != nil {
		BadRequest(response, err)
		return
	}
	itemId, err := strconv.ParseInt(request.PathParameter("item-id"), 10, 64)
	if err != nil {
		BadRequest(response, err)
		return
	}
	// view logging never blocks the response
	go func() {
		if err := s.Engine.LogView(context.Background(), userId, itemId); err != nil {
			log.Logger().Error("failed to log view",
				zap.Int64("user_id", userId), zap.Int64("item_id", itemId), zap.Error(err))
			return
		}
		ViewsLoggedTotal.Inc()
	}()
	Ok(response, Success{RowAffected: 1})
}

func (s *RestServer) insertUsers(request *restful.Request, response *restful.Response) {
	// authorize
	if !s.auth(request, response) {
		return
	}
	users := new([]data.User)
	if err := request.ReadEntity(users); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.DataClient.BatchInsertUsers(request.Request.Context(), *users); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: len(*users)})
}

func (s *RestServer) insertItems(request *restful.Request, response *restful.Response) {
	// authorize
	if !s.auth(request, response) {
		return
	}
	items := new([]data.Item)
	if err := request.ReadEntity(items); err != nil {
		BadRequest(response, err)
		return
	}
	for _, item := range *items {
		if !item.EndTime.After(item.StartTime) {
			BadRequest(response, fmt.Errorf("item %d has an empty auction window", item.ItemId))
			return
		}
	}
	if err := s.DataClient.BatchInsertItems(request.Request.Context(), *items); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: len(*items)})
}

func (s *RestServer) insertBid(request *restful.Request, response *restful.Response) {
	// authorize
	if !s.auth(request, response) {
		return
	}
	bid := data.Bid{}
	if err := request.ReadEntity(&bid); err != nil {
		BadRequest(response, err)
		return
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now()
	}
	if err := s.DataClient.InsertBid(request.Request.Context(), bid); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

func (s *RestServer) checkHealth(_ *restful.Request, response *restful.Response) {
	if err := s.DataClient.Ping(); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, HealthStatus{Ready: true})
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns an internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

func (s *RestServer) auth(request *restful.Request, response *restful.Response) bool {
	if s.Config.Server.APIKey == "" {
		return true
	}
	apikey := request.HeaderParameter("X-API-Key")
	if apikey == s.Config.Server.APIKey {
		return true
	}
	log.ResponseLogger(response).Error("unauthorized", zap.String("X-API-Key", apikey))
	if err := response.WriteError(http.StatusUnauthorized, fmt.Errorf("unauthorized")); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
	return false
}

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LabelMode = "mode"

var (
	RecommendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bidrec",
		Subsystem: "server",
		Name:      "recommend_seconds",
	})
	RecommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bidrec",
		Subsystem: "server",
		Name:      "recommendations_total",
	}, []string{LabelMode})
	ViewsLoggedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bidrec",
		Subsystem: "server",
		Name:      "views_logged_total",
	})
)

package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"revenue-backend/internal/handlers"
	"revenue-backend/internal/middleware"
	"revenue-backend/internal/models"
)

func NewRouter(
	authHandler *handlers.AuthHandler,
	districtHandler *handlers.DistrictHandler,
	submissionHandler *handlers.SubmissionHandler,
	receiptHandler *handlers.ReceiptHandler,
	reportHandler *handlers.DCBReportHandler,
	healthHandler *handlers.HealthHandler,
	monitoringHandler *handlers.MonitoringHandler,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware)

	// Public routes
	r.HandleFunc("/health", healthHandler.Check).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Districts - any authenticated user
	districtsAPI := r.PathPrefix("/api/districts").Subrouter()
	districtsAPI.Use(authMiddleware.Authenticate)
	districtsAPI.HandleFunc("", districtHandler.List).Methods("GET")

	// Submissions - inspectors record, accounts settle
	submissionsAPI := r.PathPrefix("/api/submissions").Subrouter()
	submissionsAPI.Use(authMiddleware.Authenticate)
	submissionsAPI.HandleFunc("", submissionHandler.List).Methods("GET")
	submissionsAPI.HandleFunc("", authMiddleware.RequireRole(models.RoleInspector)(http.HandlerFunc(submissionHandler.Save)).ServeHTTP).Methods("POST")
	submissionsAPI.HandleFunc("/send", authMiddleware.RequireRole(models.RoleInspector)(http.HandlerFunc(submissionHandler.Send)).ServeHTTP).Methods("POST")
	submissionsAPI.HandleFunc("/{id}", submissionHandler.Get).Methods("GET")
	submissionsAPI.HandleFunc("/{id}/verify", authMiddleware.RequireRole(models.RoleAccounts)(http.HandlerFunc(submissionHandler.Verify)).ServeHTTP).Methods("POST")
	submissionsAPI.HandleFunc("/{id}/reject", authMiddleware.RequireRole(models.RoleAccounts)(http.HandlerFunc(submissionHandler.Reject)).ServeHTTP).Methods("POST")
	submissionsAPI.HandleFunc("/{id}/receipts", receiptHandler.List).Methods("GET")
	submissionsAPI.HandleFunc("/{id}/receipts", authMiddleware.RequireRole(models.RoleInspector)(http.HandlerFunc(receiptHandler.Upload)).ServeHTTP).Methods("POST")

	// Reports - accounts and admin dashboards
	reportsAPI := r.PathPrefix("/api/reports/dcb").Subrouter()
	reportsAPI.Use(authMiddleware.Authenticate)
	reportsAPI.HandleFunc("", reportHandler.Summary).Methods("GET")
	reportsAPI.HandleFunc("/districts", reportHandler.ByDistrict).Methods("GET")
	reportsAPI.HandleFunc("/monthly", reportHandler.Monthly).Methods("GET")
	reportsAPI.HandleFunc("/top", reportHandler.TopDefaulters).Methods("GET")

	// User management - admin only
	usersAPI := r.PathPrefix("/api/users").Subrouter()
	usersAPI.Use(authMiddleware.Authenticate)
	usersAPI.Use(authMiddleware.RequireRole(models.RoleAdmin))
	usersAPI.HandleFunc("", authHandler.ListUsers).Methods("GET")
	usersAPI.HandleFunc("", authHandler.CreateUser).Methods("POST")
	usersAPI.HandleFunc("/{id}", authHandler.GetUser).Methods("GET")

	// Monitoring - admin only
	adminAPI := r.PathPrefix("/api/admin").Subrouter()
	adminAPI.Use(authMiddleware.Authenticate)
	adminAPI.Use(authMiddleware.RequireRole(models.RoleAdmin))
	adminAPI.HandleFunc("/monitoring", monitoringHandler.Stats).Methods("GET")

	return r
}

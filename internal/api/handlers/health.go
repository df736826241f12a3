package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"cms-dispatch/internal/api/dto"
	"cms-dispatch/internal/api/utils"
	"cms-dispatch/internal/db"
)

func NewHealthHandler(dbConn *sqlx.DB, dialect db.Dialect, resolvers []string, log *zap.Logger) http.HandlerFunc {
	log = orNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		if dbConn == nil {
			utils.WriteError(w, http.StatusServiceUnavailable, "Database connection unavailable", "DB_UNAVAILABLE")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := dbConn.PingContext(ctx); err != nil {
			log.Warn("health ping failed", zap.Error(err))
			utils.WriteError(w, http.StatusServiceUnavailable, "Database connection failed", "DB_UNAVAILABLE")
			return
		}
		if err := db.EnsureProcedures(ctx, dbConn, dialect, resolvers...); err != nil {
			log.Warn("health procedure check failed", zap.Error(err))
			utils.WriteError(w, http.StatusServiceUnavailable, err.Error(), "PROCEDURE_MISSING")
			return
		}

		utils.WriteOK(w, dto.HealthResponse{Status: "ok", Database: "ok", Procedures: resolvers})
	}
}

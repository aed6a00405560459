package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof 非 production 環境時在 127.0.0.1:6060 啟動 pprof
//
//	go tool pprof http://localhost:6060/debug/pprof/heap
func StartPprof() {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server on 127.0.0.1:6060")
		if err := http.ListenAndServe("127.0.0.1:6060", nil); err != nil {
			logger.Log.Warn("pprof server stopped", zap.Error(err))
		}
	}()
}

package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"autframe/internal/logger"
	"autframe/internal/storage/db"
	"autframe/internal/storage/model"
	"autframe/internal/storage/repo"
)

func newSettings(t *testing.T) *repo.SettingsRepo {
	t.Helper()
	gdb, err := db.New(db.Options{Name: db.MemoryDSN})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}
	if err := db.Migrate(gdb, &model.Setting{}); err != nil {
		t.Fatalf("迁移数据库失败: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repo.NewSettingsRepo(gdb)
}

func TestStoredDevToolsURL(t *testing.T) {
	devtools := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Browser":"Chrome/120.0","Protocol-Version":"1.3"}`))
	}))
	defer devtools.Close()

	ctx := context.Background()
	log := logger.NewNop()
	settings := newSettings(t)

	if got := storedDevToolsURL(ctx, settings, log); got != "" {
		t.Errorf("未保存地址时应返回空串，实际 %q", got)
	}

	if err := settings.SetDevToolsURL(ctx, devtools.URL); err != nil {
		t.Fatalf("保存 DevTools 地址失败: %v", err)
	}
	if got := storedDevToolsURL(ctx, settings, log); got != devtools.URL {
		t.Errorf("可达时应复用保存的地址，实际 %q", got)
	}

	devtools.Close()
	if got := storedDevToolsURL(ctx, settings, log); got != "" {
		t.Errorf("不可达时应返回空串，实际 %q", got)
	}
}

func TestStartHTTP(t *testing.T) {
	srv, errCh, err := startHTTP("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ready"))
	}))
	if err != nil {
		t.Fatalf("启动 HTTP 服务失败: %v", err)
	}

	// 返回后立即可连接
	res, err := http.Get("http://" + srv.Addr + "/")
	if err != nil {
		t.Fatalf("返回后端口应已监听: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if string(body) != "ready" {
		t.Errorf("响应不符: %s", body)
	}

	if _, _, err := startHTTP(srv.Addr, http.NotFoundHandler()); err == nil {
		t.Error("地址已占用时应同步返回错误")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("关闭 HTTP 服务失败: %v", err)
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Errorf("正常关闭不应上报错误: %v", err)
	}
}

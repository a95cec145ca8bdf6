package repo

import (
	"context"
	"time"

	"autframe/internal/storage/model"

	"gorm.io/gorm"
)

// WorkspaceRepo 工作区仓库
type WorkspaceRepo struct {
	BaseRepository[model.WorkspaceRecord]
}

// NewWorkspaceRepo 创建工作区仓库实例
func NewWorkspaceRepo(db *gorm.DB) *WorkspaceRepo {
	return &WorkspaceRepo{
		BaseRepository: *NewBaseRepository[model.WorkspaceRecord](db),
	}
}

// Open 记录新会话的工作区
func (r *WorkspaceRepo) Open(ctx context.Context, sessionID, targetID, serverURL, appURL string) (*model.WorkspaceRecord, error) {
	rec := &model.WorkspaceRecord{
		SessionID: sessionID,
		TargetID:  targetID,
		ServerURL: serverURL,
		AppURL:    appURL,
	}
	if err := r.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetBySession 按会话ID查询工作区
func (r *WorkspaceRepo) GetBySession(ctx context.Context, sessionID string) (*model.WorkspaceRecord, error) {
	return r.FindOne(ctx, Where{"session_id": sessionID})
}

// SetAppURL 更新应用地址
func (r *WorkspaceRepo) SetAppURL(ctx context.Context, sessionID, appURL string) error {
	_, err := r.Updates(ctx, Where{"session_id": sessionID}, map[string]any{"app_url": appURL})
	return err
}

// SetCode 更新代码缓冲区
func (r *WorkspaceRepo) SetCode(ctx context.Context, sessionID, code string) error {
	_, err := r.Updates(ctx, Where{"session_id": sessionID}, map[string]any{"code": code})
	return err
}

// MarkClosed 标记工作区已关闭
func (r *WorkspaceRepo) MarkClosed(ctx context.Context, sessionID string) error {
	now := time.Now()
	_, err := r.Updates(ctx, Where{"session_id": sessionID}, map[string]any{"closed": true, "closed_at": &now})
	return err
}

// ListOpen 列出未关闭的工作区
func (r *WorkspaceRepo) ListOpen(ctx context.Context) ([]model.WorkspaceRecord, error) {
	return r.FindAll(ctx, Where{"closed": false}, Orders{{Field: "created_at", Sort: "ASC"}}, 0)
}

// CloseAllOpen 将所有未关闭的工作区标记为关闭，用于进程重启后的清理
func (r *WorkspaceRepo) CloseAllOpen(ctx context.Context) (int64, error) {
	now := time.Now()
	return r.Updates(ctx, Where{"closed": false}, map[string]any{"closed": true, "closed_at": &now})
}

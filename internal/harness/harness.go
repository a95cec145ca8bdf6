package harness

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"autframe/internal/patcher"
)

//go:embed static
var static embed.FS

// IndexFile 外壳文档文件名
const IndexFile = "index.html"

// Harness 外壳文档及其静态资源
type Harness struct {
	Document string
	Assets   fs.FS // 以 assets/ 为根
}

// Default 返回内置外壳
func Default() (*Harness, error) {
	root, err := fs.Sub(static, "static")
	if err != nil {
		return nil, err
	}
	return fromFS(root)
}

// Load 从磁盘目录加载外壳，dir 为空时使用内置外壳
func Load(dir string) (*Harness, error) {
	if dir == "" {
		return Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("load harness: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load harness: %s is not a directory", dir)
	}
	return fromFS(os.DirFS(filepath.Clean(dir)))
}

func fromFS(root fs.FS) (*Harness, error) {
	doc, err := fs.ReadFile(root, IndexFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IndexFile, err)
	}
	if err := patcher.Validate(string(doc)); err != nil {
		return nil, err
	}

	assets, err := fs.Sub(root, "assets")
	if err != nil {
		return nil, err
	}
	return &Harness{Document: string(doc), Assets: assets}, nil
}

// @title Formula OCR API
// @version 1.0
// @description 公式图片识别服务，返回 LaTeX
// @host localhost:8000
// @BasePath /api
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"formula-ocr-server/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	fmt.Printf("[%s] [INFO] [引导] 开始启动 formula-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background(), bootstrap.Options{ConfigPath: *configPath}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "formula-server failed: %v\n", err)
		os.Exit(1)
	}
}

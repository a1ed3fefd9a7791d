package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/models"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 必须小于 pongWait
	reconnectDelay = 5 * time.Second
)

// PriceFunc 在每次收到成交事件时被调用
type PriceFunc func(symbol string, price float64)

// PriceStream 订阅交易所的成交推送, 把最新成交价回调给交易对缓存。
// 推送只是刷新之外的补充, 连接断开不影响主流程。
type PriceStream struct {
	wsURL   string
	logger  *zap.SugaredLogger
	onPrice PriceFunc

	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewPriceStream 创建一个新的 PriceStream 实例
func NewPriceStream(wsURL string, logger *zap.SugaredLogger, onPrice PriceFunc) *PriceStream {
	return &PriceStream{
		wsURL:       wsURL,
		logger:      logger,
		onPrice:     onPrice,
		stopChannel: make(chan struct{}),
	}
}

// Start 启动一个守护 goroutine, 负责维持 WebSocket 的连接和重连
func (s *PriceStream) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stopChannel:
				s.logger.Info("行情推送循环已停止")
				return
			default:
				if err := s.listen(); err != nil {
					s.logger.Warnf("行情推送连接中断: %v, %v 后重连", err, reconnectDelay)
				}
				select {
				case <-s.stopChannel:
					return
				case <-time.After(reconnectDelay):
				}
			}
		}
	}()
}

// Stop 关闭推送并等待后台 goroutine 退出
func (s *PriceStream) Stop() {
	s.stopOnce.Do(func() { close(s.stopChannel) })
	s.wg.Wait()
}

// listen 建立一次连接并持续读取, 返回错误表示连接已损坏, 由调用方重连
func (s *PriceStream) listen() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("连接行情推送失败: %w", err)
	}
	defer conn.Close()
	s.logger.Infof("行情推送已连接: %s", s.wsURL)

	// Pong 处理器用于延长读取超时
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingStop:
				return
			}
		}
	}()

	for {
		select {
		case <-s.stopChannel:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				// 任何读取错误都意味着连接已损坏, 交给外层重连
				return fmt.Errorf("读取行情消息失败: %w", err)
			}
			s.handleMessage(message)
		}
	}
}

func (s *PriceStream) handleMessage(message []byte) {
	var event models.TradeStreamEvent
	if err := json.Unmarshal(message, &event); err != nil {
		s.logger.Debugf("忽略无法解析的行情消息: %v", err)
		return
	}
	if event.Symbol == "" || event.Price == "" {
		return
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil || price <= 0 {
		return
	}
	s.onPrice(event.Symbol, price)
}

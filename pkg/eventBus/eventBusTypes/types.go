package eventBusTypes

import (
	"context"
	"sync"
)

const (
	Event_LoadCompleted    = "load.completed"
	Event_ErpSyncCompleted = "erp.sync.completed"
)

type Event struct {
	Name string
	Data any
}

type ConsumerId string

type Consumer struct {
	Id      ConsumerId
	Context context.Context
	Channel chan *Event
}

type ConsumerList struct {
	mu        sync.Mutex
	consumers []*Consumer
}

func NewConsumerList() *ConsumerList {
	return &ConsumerList{
		consumers: make([]*Consumer, 0),
	}
}

// Add replaces any consumer already registered under the same id.
func (cl *ConsumerList) Add(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for i, c := range cl.consumers {
		if c.Id == consumer.Id {
			cl.consumers[i] = consumer
			return
		}
	}
	cl.consumers = append(cl.consumers, consumer)
}

func (cl *ConsumerList) Remove(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for i, c := range cl.consumers {
		if c.Id == consumer.Id {
			cl.consumers = append(cl.consumers[:i], cl.consumers[i+1:]...)
			break
		}
	}
}

// GetAll returns a snapshot that is safe to range over while consumers change.
func (cl *ConsumerList) GetAll() []*Consumer {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]*Consumer, len(cl.consumers))
	copy(out, cl.consumers)
	return out
}

type IEventBus interface {
	Subscribe(consumer *Consumer)
	Unsubscribe(consumer *Consumer)
	Publish(event *Event) int
}

// LoadCompletedData is published once a load batch has committed.
type LoadCompletedData struct {
	BatchId       string
	Kind          string
	Actor         string
	RowsProcessed int
	RowsSkipped   int
	RowsDropped   int
	Message       string
}

// ErpSyncCompletedData is published at the end of every ERP sync pass,
// including passes where some sources failed.
type ErpSyncCompletedData struct {
	Sources []string
	Failed  []string
}

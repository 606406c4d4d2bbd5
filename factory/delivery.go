package factory

import (
	"github.com/allape/hypercap/config"
	"github.com/allape/hypercap/grabber/delivery"
)

func TargetFromConfig(conf config.Config) delivery.Target {
	return delivery.Target{
		Address:   conf.Delivery.Address,
		Priority:  int32(conf.Delivery.Priority),
		SkipReply: conf.Delivery.SkipReply,
		Timeout:   conf.Delivery.Timeout.Std(),
		Duration:  conf.Delivery.Duration.Std(),
	}
}

func ClientFromConfig(conf config.Config) *delivery.Client {
	target := TargetFromConfig(conf)
	l.Info().Printf("deliver to %s with priority %d", target.Address, target.Priority)
	return delivery.NewClient(target, nil)
}

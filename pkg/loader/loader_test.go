package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMinInt(t *testing.T) {
	assert.Equal(t, 2, minInt(5, 2, 9))
	assert.Equal(t, 1, minInt(0, -3, 9))
}

func TestLoaderDefaults(t *testing.T) {
	l := &Loader{}
	assert.Equal(t, defaultBatchSize, l.batchSize())
	assert.Equal(t, defaultMaxBufferedBatches, l.maxBuffered())
	assert.Equal(t, defaultLoaderCap, l.loaderCap())

	l2 := &Loader{BatchSize: 100, MaxBufferedBatches: 2, LoaderCap: 8}
	assert.Equal(t, 100, l2.batchSize())
	assert.Equal(t, 2, l2.maxBuffered())
	assert.Equal(t, 8, l2.loaderCap())
}

func TestSendDataNoItemsIsNoop(t *testing.T) {
	l := &Loader{}
	err := l.SendData(context.Background(), nil, nil)
	assert.NoError(t, err)
}

func TestLoaderCharsetDefault(t *testing.T) {
	l := &Loader{}
	assert.Equal(t, defaultCharset, l.charset())

	l2 := &Loader{Charset: "LATIN1"}
	assert.Equal(t, "LATIN1", l2.charset())
}

package aqmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"sync"
	"testing"

	"github.com/ctessum/aqmap/internal/mock_aqmap"
	"github.com/golang/mock/gomock"
)

const cacheTestData = `Units: ugm-3
1,500,500,10
2,1500,500,20
`

func openTestData(string, int) (io.ReadCloser, error) {
	return ioutil.NopCloser(strings.NewReader(cacheTestData)), nil
}

func TestDataCache_Get(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	src := mock_aqmap.NewMockSource(mockCtrl)
	src.EXPECT().Open("no2", 2019).DoAndReturn(openTestData).Times(1)
	src.EXPECT().Open("no2", 2018).DoAndReturn(openTestData).Times(1)

	c := NewDataCache(src)
	ctx := context.Background()
	ds1, err := c.Get(ctx, "no2", 2019)
	if err != nil {
		t.Fatal(err)
	}
	ds2, err := c.Get(ctx, "no2", 2019)
	if err != nil {
		t.Fatal(err)
	}
	if ds1 != ds2 {
		t.Error("repeated requests should return the same dataset")
	}
	if ds1.Len() != 2 {
		t.Errorf("len %d != 2", ds1.Len())
	}
	ds3, err := c.Get(ctx, "no2", 2018)
	if err != nil {
		t.Fatal(err)
	}
	if ds3 == ds1 {
		t.Error("different years should return different datasets")
	}
	if c.Len() != 2 {
		t.Errorf("cache length %d != 2", c.Len())
	}
}

func TestDataCache_concurrent(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	src := mock_aqmap.NewMockSource(mockCtrl)
	src.EXPECT().Open("no2", 2019).DoAndReturn(openTestData).Times(1)

	c := NewDataCache(src)
	const n = 20
	results := make([]*GridDataSet, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "no2", 2019)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatal(errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("request %d returned a different dataset", i)
		}
	}
}

func TestDataCache_errors(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	src := mock_aqmap.NewMockSource(mockCtrl)
	notFound := fmt.Errorf("%w: no2 2001", ErrDataNotFound)
	src.EXPECT().Open("no2", 2001).Return(nil, notFound).Times(2)

	c := NewDataCache(src)
	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), "no2", 2001); !errors.Is(err, ErrDataNotFound) {
			t.Errorf("attempt %d: %v", i, err)
		}
	}
	if c.Len() != 0 {
		t.Errorf("failed loads should not be cached")
	}
}

func TestDataCache_canceled(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	src := mock_aqmap.NewMockSource(mockCtrl)
	src.EXPECT().Open("no2", 2019).DoAndReturn(openTestData).Times(1)

	c := NewDataCache(src)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, "no2", 2019); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled miss: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("canceled miss should not load")
	}
	ds, err := c.Get(context.Background(), "no2", 2019)
	if err != nil {
		t.Fatal(err)
	}
	// Cached datasets are returned whatever the context.
	ds2, err := c.Get(ctx, "no2", 2019)
	if err != nil {
		t.Fatal(err)
	}
	if ds != ds2 {
		t.Error("hit should return the cached dataset")
	}
}

func TestDataCache_GetAsync(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	src := mock_aqmap.NewMockSource(mockCtrl)
	src.EXPECT().Open("no2", 2019).DoAndReturn(openTestData).Times(1)
	src.EXPECT().Open("no2", 2001).Return(nil, ErrDataNotFound).Times(1)

	c := NewDataCache(src)
	p := c.GetAsync(context.Background(), "no2", 2019)
	<-p.Done()
	ds, err := p.Wait()
	if err != nil {
		t.Fatal(err)
	}
	ds2, err := c.Get(context.Background(), "no2", 2019)
	if err != nil {
		t.Fatal(err)
	}
	if ds != ds2 {
		t.Error("async and sync results should be the same instance")
	}

	_, err = c.GetAsync(context.Background(), "no2", 2001).Wait()
	if !errors.Is(err, ErrDataNotFound) {
		t.Errorf("missing dataset: %v", err)
	}
}

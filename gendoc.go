package aqmap

// go get github.com/golang/mock/gomock
// go install github.com/golang/mock/mockgen

// Generate mock data source
//go:generate sh -c "mockgen -package mock_aqmap github.com/ctessum/aqmap Source > internal/mock_aqmap/mock_source.go"

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cryomcp/internal/errors"
)

// Resource represents a static resource
type Resource struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ResourceTemplate represents a dynamic resource with URI template
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
}

// handleListResources lists one resource per dataset the extraction binary
// knows about, plus the dataset URI template.
func (s *Server) handleListResources() (interface{}, error) {
	datasets, err := s.runner.Datasets(context.Background())
	if err != nil {
		return nil, err
	}

	resources := make([]Resource, 0, len(datasets))
	for _, name := range datasets {
		resources = append(resources, Resource{
			URI:  "dataset://" + name,
			Name: name,
		})
	}

	templates := []ResourceTemplate{
		{
			URITemplate: "dataset://{name}",
			Name:        "Dataset",
		},
	}

	return map[string]interface{}{
		"resources":         resources,
		"resourceTemplates": templates,
	}, nil
}

// handleReadResource resolves a dataset:// URI to the dataset's description,
// serialized as a JSON text content block.
func (s *Server) handleReadResource(params map[string]interface{}) (interface{}, error) {
	uri, ok := params["uri"].(string)
	if !ok || uri == "" {
		return nil, errors.NewInvalidParameterError("uri", "")
	}

	s.logger.Debug("Reading resource", "uri", uri)

	if !strings.HasPrefix(uri, "dataset://") {
		return nil, errors.NewInvalidParameterError("uri", "expected dataset:// scheme")
	}

	name := strings.TrimPrefix(uri, "dataset://")
	if name == "" {
		return nil, errors.NewInvalidParameterError("uri", "dataset URI requires a dataset name")
	}

	info, err := s.datasetInfo(context.Background(), name)
	if err != nil {
		return nil, err
	}

	text, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource payload: %w", err)
	}

	return map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      uri,
				"mimeType": "application/json",
				"text":     string(text),
			},
		},
	}, nil
}

package response

import "github.com/gin-gonic/gin"

// JSON writes the standard API envelope.
func JSON(c *gin.Context, message string, status int, data interface{}, err error) {
	errMessage := ""
	if err != nil {
		errMessage = err.Error()
	}
	responsedata := gin.H{
		"message": message,
		"data":    data,
		"errors":  errMessage,
		"status":  status,
	}
	c.JSON(status, responsedata)
}
